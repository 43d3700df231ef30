package main

import "fmt"

// 命令暫存器固定值 (依變頻器通訊協議)
const (
	cmdCodeRunForward uint16 = 1 // 正轉運行
	cmdCodeDecelStop  uint16 = 6 // 減速停機
	cmdCodeFaultReset uint16 = 7 // 故障復位
)

// 狀態暫存器已知值
const (
	statusCodeRunForward uint16 = 1
	statusCodeRunReverse uint16 = 2
	statusCodeStopped    uint16 = 3
)

// StatusNoComm 通訊失敗時的狀態文字
const StatusNoComm = "No comm"

// Command 驅動命令 (封閉集合)
// 僅 CommandStart / CommandStop / CommandReset 三個值可被建構，
// 命令暫存器永遠只會被寫入這三個值對應的固定碼。
type Command int

const (
	CommandStart Command = iota
	CommandStop
	CommandReset
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandReset:
		return "reset"
	default:
		return "unknown"
	}
}

// RegisterValue 返回命令對應的固定暫存器值
// 封閉集合之外的值理論上不可達，仍以錯誤防護而非 panic。
func (c Command) RegisterValue() (uint16, error) {
	switch c {
	case CommandStart:
		return cmdCodeRunForward, nil
	case CommandStop:
		return cmdCodeDecelStop, nil
	case CommandReset:
		return cmdCodeFaultReset, nil
	default:
		return 0, fmt.Errorf("無效的命令: %d", int(c))
	}
}

// ParseCommand 解析命令名稱
func ParseCommand(s string) (Command, error) {
	switch s {
	case "start":
		return CommandStart, nil
	case "stop":
		return CommandStop, nil
	case "reset":
		return CommandReset, nil
	default:
		return 0, fmt.Errorf("無效的命令: %q", s)
	}
}
