// Package sscma implements the SSCMA AT protocol spoken by the Grove Vision
// AI V2 coprocessor over UART.
//
// Requests are ASCII lines of the form
//
//	AT+[TAG@]COMMAND[=ARG1,ARG2,...]\r\n
//
// The device answers with JSON frames delimited by a fixed end marker:
//
//	\r{"type":0,"name":"ID","code":0,"data":"..."}\n
//
// Responses to commands, asynchronous inference events and device log lines
// all share this framing and arrive interleaved on the same wire.
package sscma

import (
	"fmt"
	"strings"
)

const (
	// Terminal control
	CRLF         = "\r\n"
	CommandLead  = "AT+"
	TagSeparator = "@"
	ArgSeparator = "="

	// Reply framing. Every frame starts after a CR and ends with the
	// two-byte EndMarker.
	ReplyLead = "\r{"
	EndMarker = "}\n"

	// Command names
	CmdID      = "ID?"
	CmdName    = "NAME?"
	CmdVersion = "VER?"
	CmdInfo    = "INFO?"
	CmdInvoke  = "INVOKE"
	CmdSample  = "SAMPLE"
	CmdAction  = "ACTION"
	CmdModel   = "MODEL"
	CmdModels  = "MODELS"
	CmdSensor  = "SENSOR"
	CmdSensors = "SENSORS"
	CmdAlgos   = "ALGOS"
	CmdStat    = "STAT"
	CmdTIOU    = "TIOU"
	CmdTScore  = "TSCORE"
	CmdReset   = "RST"
	CmdBreak   = "BREAK"

	// ACTION argument that makes the device store the current frame as JPEG
	ActionSaveJPEG = "save_jpeg()"

	// Event names
	EventInvoke     = "INVOKE"
	EventSample     = "SAMPLE"
	EventSupervisor = "SUPERVISOR"
	EventWiFi       = "WIFI"
	EventMQTT       = "MQTT"
)

// FrameType identifies the nature of a decoded frame.
type FrameType int

const (
	TypeResponse FrameType = 0 // direct reply to an issued command
	TypeEvent    FrameType = 1 // asynchronous inference/capture result
	TypeLog      FrameType = 2 // device log line
)

func (t FrameType) String() string {
	switch t {
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	case TypeLog:
		return "log"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// Code is a device result code carried in the "code" field of every frame.
type Code int

const (
	CodeOK           Code = 0
	CodeAgain        Code = 1
	CodeLog          Code = 2
	CodeTimeout      Code = 3
	CodeIO           Code = 4
	CodeInvalidArg   Code = 5
	CodeNoMemory     Code = 6
	CodeBusy         Code = 7
	CodeNotSupported Code = 8
	CodePermission   Code = 9
	CodeUnknown      Code = 10
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeAgain:
		return "AGAIN"
	case CodeLog:
		return "LOG"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeIO:
		return "IO"
	case CodeInvalidArg:
		return "INVALID_ARG"
	case CodeNoMemory:
		return "NO_MEMORY"
	case CodeBusy:
		return "BUSY"
	case CodeNotSupported:
		return "NOT_SUPPORTED"
	case CodePermission:
		return "PERMISSION"
	case CodeUnknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// FormatCommand builds the request line for a command. An empty tag produces
// "AT+CMD\r\n"; a non-empty tag produces "AT+TAG@CMD\r\n". The device echoes
// the tag back in the matching response.
func FormatCommand(cmd, tag string) []byte {
	if tag != "" {
		return []byte(CommandLead + tag + TagSeparator + cmd + CRLF)
	}
	return []byte(CommandLead + cmd + CRLF)
}

// BareName reduces a command to the name responses are correlated on: the
// argument part after "=" is dropped ("INVOKE=1,0,0" is answered by a frame
// named "INVOKE"), as is the query marker ("ID?" may be answered as "ID").
func BareName(cmd string) string {
	if i := strings.Index(cmd, ArgSeparator); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.TrimSuffix(cmd, "?")
}
