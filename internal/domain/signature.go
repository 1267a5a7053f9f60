package domain

import (
	"fmt"
	"strings"
)

// OrderSignature 订单身份键：takerKey + "-" + orderId。
// 用作去重与单飞（single-flight）键。
type OrderSignature string

func NewOrderSignature(takerKey string, orderID uint64) OrderSignature {
	return OrderSignature(fmt.Sprintf("%s-%d", takerKey, orderID))
}

func (s OrderSignature) String() string { return string(s) }

const uuidAlphabet = "_~0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// UUIDToOrderID 把签名订单的短 uuid 按 64 进制字母表折算成数字订单号。
// 字母表之外的字符按 -1 处理，和上游 relay 的折算方式保持一致。
func UUIDToOrderID(uuid string) uint64 {
	var n int64
	for _, c := range uuid {
		n = n*64 + int64(strings.IndexRune(uuidAlphabet, c))
	}
	return uint64(n)
}
