// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ak8963/ak8963"
	"github.com/relabs-tech/ak8963/internal/mag"
	"github.com/relabs-tech/ak8963/internal/sensors"
)

// registerDevice is the part of sensors.MagManager the debug tool drives.
type registerDevice interface {
	ReadRegister(addr byte) (byte, error)
	ReadAllRegisters() (map[byte]byte, error)
	WriteRegister(addr, v byte) error
	Reinitialize() error
	RegisterMap() []sensors.RegisterInfo
	ReadReading() (mag.Reading, error)
}

// RegisterDebugSession holds WebSocket connection state for register debugging
type RegisterDebugSession struct {
	Conn *websocket.Conn
	dev  registerDevice
}

// RegisterCmd is any client request. Addr and Value are "0xNN" strings.
type RegisterCmd struct {
	Action string `json:"action"` // get_map, read, read_all, write, init, sample, export_config
	Addr   string `json:"addr,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RegisterResponse is any server message.
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "sample", "status", "export_config", "error"
	Device      string                 `json:"device,omitempty"`
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
	Reading     *mag.Reading           `json:"reading,omitempty"`
	Config      string                 `json:"config,omitempty"`
	Filename    string                 `json:"filename,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Status      string                 `json:"status,omitempty"`
}

// RegisterConfigFile is the JSON document produced by export_config.
type RegisterConfigFile struct {
	Version   int               `json:"version"`
	Device    string            `json:"device"`
	Timestamp string            `json:"timestamp"`
	Registers map[string]string `json:"registers"` // hex address -> hex value
}

const deviceName = "ak8963"

// HandleRegisterDebugWS serves the debug WebSocket for the process wide
// magnetometer manager.
func HandleRegisterDebugWS(w http.ResponseWriter, r *http.Request) {
	NewRegisterDebugHandler(sensors.GetMagManager())(w, r)
}

// NewRegisterDebugHandler returns a WebSocket handler driving dev.
func NewRegisterDebugHandler(dev registerDevice) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("register_debug: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		s := &RegisterDebugSession{Conn: conn, dev: dev}
		if err := s.sendRegisterMap(); err != nil {
			log.Printf("register_debug: error sending register map: %v", err)
			return
		}
		s.serve()
	}
}

func (s *RegisterDebugSession) serve() {
	for {
		var cmd RegisterCmd
		if err := s.Conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			return
		}

		var err error
		switch cmd.Action {
		case "get_map":
			err = s.sendRegisterMap()
		case "read":
			err = s.handleRead(cmd)
		case "read_all":
			err = s.handleReadAll()
		case "write":
			err = s.handleWrite(cmd)
		case "init":
			err = s.handleInit()
		case "sample":
			err = s.handleSample()
		case "export_config":
			err = s.handleExportConfig()
		case "":
			err = errors.New("missing action field")
		default:
			err = fmt.Errorf("unknown action: %s", cmd.Action)
		}
		if err != nil {
			s.sendError(err.Error())
		}
	}
}

func (s *RegisterDebugSession) handleRead(cmd RegisterCmd) error {
	addr, err := parseHexByte(cmd.Addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %q", cmd.Addr)
	}
	value, err := s.dev.ReadRegister(addr)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    deviceName,
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *RegisterDebugSession) handleReadAll() error {
	registers, err := s.dev.ReadAllRegisters()
	if err != nil && len(registers) == 0 {
		return fmt.Errorf("read all error: %w", err)
	}
	resp := RegisterResponse{
		Type:      "register_data",
		Device:    deviceName,
		Registers: hexMap(registers),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err != nil {
		resp.Message = "partial read: " + err.Error()
	}
	return s.Conn.WriteJSON(resp)
}

func (s *RegisterDebugSession) handleWrite(cmd RegisterCmd) error {
	addr, err := parseHexByte(cmd.Addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %q", cmd.Addr)
	}
	value, err := parseHexByte(cmd.Value)
	if err != nil {
		return fmt.Errorf("invalid value format: %q", cmd.Value)
	}
	if err := s.dev.WriteRegister(addr, value); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:      "register_data",
		Device:    deviceName,
		Address:   hexByte(addr),
		Value:     hexByte(value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	})
}

func (s *RegisterDebugSession) handleInit() error {
	if err := s.dev.Reinitialize(); err != nil {
		return fmt.Errorf("reinit error: %w", err)
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:    "status",
		Device:  deviceName,
		Status:  "initialized",
		Message: "AK8963 reinitialized successfully",
	})
}

// handleSample reads one sample. Not-ready and saturation are reported as
// status messages, not errors.
func (s *RegisterDebugSession) handleSample() error {
	r, err := s.dev.ReadReading()
	switch {
	case errors.Is(err, ak8963.ErrNotReady):
		return s.Conn.WriteJSON(RegisterResponse{Type: "status", Device: deviceName, Status: "not_ready"})
	case errors.Is(err, sensors.ErrSaturated):
		return s.Conn.WriteJSON(RegisterResponse{Type: "status", Device: deviceName, Status: "saturated"})
	case err != nil:
		return fmt.Errorf("sample error: %w", err)
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:      "sample",
		Device:    deviceName,
		Reading:   &r,
		Timestamp: r.Time,
	})
}

func (s *RegisterDebugSession) handleExportConfig() error {
	registers, err := s.dev.ReadAllRegisters()
	if err != nil {
		return fmt.Errorf("export error: %w", err)
	}
	now := time.Now()
	b, err := json.Marshal(RegisterConfigFile{
		Version:   1,
		Device:    deviceName,
		Timestamp: now.Format(time.RFC3339),
		Registers: hexMap(registers),
	})
	if err != nil {
		return err
	}
	return s.Conn.WriteJSON(RegisterResponse{
		Type:     "export_config",
		Device:   deviceName,
		Message:  "config exported",
		Config:   string(b),
		Filename: fmt.Sprintf("%s_%s_registers.json", deviceName, now.Format("20060102_150405")),
	})
}

func (s *RegisterDebugSession) sendRegisterMap() error {
	return s.Conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		Device:      deviceName,
		RegisterMap: s.dev.RegisterMap(),
	})
}

func (s *RegisterDebugSession) sendError(message string) {
	if err := s.Conn.WriteJSON(RegisterResponse{Type: "error", Message: message}); err != nil {
		log.Printf("register_debug: error sending error: %v", err)
	}
}

// parseHexByte accepts "0x0A", "0A" or "10" style values. Bare digits are hex.
func parseHexByte(s string) (byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}

func hexMap(regs map[byte]byte) map[string]string {
	out := make(map[string]string, len(regs))
	for addr, value := range regs {
		out[hexByte(addr)] = hexByte(value)
	}
	return out
}
