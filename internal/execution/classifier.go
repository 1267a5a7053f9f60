package execution

import (
	"errors"
	"strings"

	"github.com/betbot/jitbot/internal/domain"
)

// ErrorClass 成交失败分类
type ErrorClass uint8

const (
	ClassNone ErrorClass = iota
	// ClassNotCrossed 程序判定订单并未穿越提交的报价（预测过期），快速重试
	ClassNotCrossed
	// ClassStaleOracle 程序使用的预言机数据无效/过期，快速重试
	ClassStaleOracle
	// ClassUnfillable 订单已无法成交（被抢先成交、已取消等），立即放弃
	ClassUnfillable
	// ClassUnclassified 其余错误，冷却后放弃
	ClassUnclassified
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNotCrossed:
		return "not_crossed"
	case ClassStaleOracle:
		return "stale_oracle"
	case ClassUnfillable:
		return "unfillable"
	default:
		return "unclassified"
	}
}

// Retryable 是否值得在同一拍卖内立即重试
func (c ErrorClass) Retryable() bool {
	return c == ClassNotCrossed || c == ClassStaleOracle
}

// 按顺序匹配：日志里同时出现多个错误码时以靠前的为准
var codeClasses = []struct {
	code  domain.ProgramErrorCode
	class ErrorClass
}{
	{domain.ErrBidNotCrossed, ClassNotCrossed},
	{domain.ErrAskNotCrossed, ClassNotCrossed},
	{domain.ErrInvalidOracle, ClassStaleOracle},
	{domain.ErrTakerOrderNotFound, ClassUnfillable},
	{domain.ErrOrderSizeBreached, ClassUnfillable},
	{domain.ErrPositionLimitBreached, ClassUnfillable},
	{domain.ErrNoFill, ClassUnfillable},
	{domain.ErrSignedMsgOrderDoesNotExist, ClassUnfillable},
}

// Classify 把提交错误归类。
// 优先识别 *domain.ProgramError，否则在错误文本（模拟日志）中查找 "0x1770" 形式的错误码。
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var pe *domain.ProgramError
	if errors.As(err, &pe) {
		for _, cc := range codeClasses {
			if cc.code == pe.Code {
				return cc.class
			}
		}
		return ClassUnclassified
	}
	msg := strings.ToLower(err.Error())
	for _, cc := range codeClasses {
		if strings.Contains(msg, cc.code.Hex()) {
			return cc.class
		}
	}
	return ClassUnclassified
}
