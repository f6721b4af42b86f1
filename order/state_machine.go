package order

import "fmt"

type transition struct {
	From Status
	To   Status
}

// 终态（FILLED, CANCELED, REJECTED）不能再转换。
var legalTransitions = map[transition]bool{
	{StatusPending, StatusNew}:      true,
	{StatusPending, StatusRejected}: true,

	{StatusNew, StatusAck}:      true,
	{StatusNew, StatusPartial}:  true,
	{StatusNew, StatusFilled}:   true,
	{StatusNew, StatusCanceled}: true,
	{StatusNew, StatusRejected}: true,

	{StatusAck, StatusPartial}:  true,
	{StatusAck, StatusFilled}:   true,
	{StatusAck, StatusCanceled}: true,

	{StatusPartial, StatusFilled}:   true,
	{StatusPartial, StatusCanceled}: true,
}

// ValidateTransition 验证状态转换是否合法，相同状态视为幂等。
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !legalTransitions[transition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

// IsFinal 判断是否是终态。
func IsFinal(s Status) bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	}
	return false
}

// IsActive 判断订单是否仍挂在盘口上。
func IsActive(s Status) bool {
	switch s {
	case StatusNew, StatusAck, StatusPartial:
		return true
	}
	return false
}
