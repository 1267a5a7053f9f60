package domain

import "fmt"

// ProgramErrorCode 链上 jit 程序 / 撮合程序返回的自定义错误码
type ProgramErrorCode uint32

const (
	ErrBidNotCrossed              ProgramErrorCode = 0x1770
	ErrAskNotCrossed              ProgramErrorCode = 0x1771
	ErrTakerOrderNotFound         ProgramErrorCode = 0x1772
	ErrOrderSizeBreached          ProgramErrorCode = 0x1773
	ErrPositionLimitBreached      ProgramErrorCode = 0x1778
	ErrNoFill                     ProgramErrorCode = 0x1779
	ErrSignedMsgOrderDoesNotExist ProgramErrorCode = 0x177a
	ErrInvalidOracle              ProgramErrorCode = 0x1793
)

// Hex 返回 "0x1770" 形式，与交易模拟日志中的格式一致
func (c ProgramErrorCode) Hex() string {
	return fmt.Sprintf("0x%x", uint32(c))
}

// ProgramError 提交成交后由程序拒绝的错误
type ProgramError struct {
	Code    ProgramErrorCode
	Message string
}

func (e *ProgramError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("program error %s", e.Code.Hex())
	}
	return fmt.Sprintf("program error %s: %s", e.Code.Hex(), e.Message)
}
