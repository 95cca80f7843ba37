// internal/driver/bnc575/command.go
package bnc575

import (
	"strconv"

	"bnc-service/internal/protocol"
)

// System is the pulse node index that addresses the whole instrument
const System = 0

// COMMANDS contains the SCPI nodes understood by the BNC 575.
// Common commands are complete; pulse nodes are suffixes under :PULSEn.
var COMMANDS = struct {
	// Common commands
	IDN     string
	RESET   string
	TRIGGER string
	SAVE    string
	RECALL  string
	LABEL   string

	// Instrument
	INST_STATE string

	// System pulse node (:PULSE0)
	MODE       string
	PERIOD     string
	TRIG_MODE  string
	TRIG_LEVEL string
	TRIG_EDGE  string
	GATE_MODE  string
	GATE_LEVEL string
	GATE_LOGIC string

	// Channel pulse nodes (:PULSE1..4)
	CHANNEL_MODE  string
	CHANNEL_STATE string
	DELAY         string
	WIDTH         string
	OUTPUT_MODE   string
	AMPLITUDE     string
	POLARITY      string
	CHANNEL_GATE  string
	CHANNEL_LOGIC string
}{
	IDN:     "*IDN",
	RESET:   "*RST",
	TRIGGER: "*TRG",
	SAVE:    "*SAV",
	RECALL:  "*RCL",
	LABEL:   "*LBL",

	INST_STATE: protocol.Path("INST", "STATE"),

	MODE:       "MODE",
	PERIOD:     "PER",
	TRIG_MODE:  "TRIG:MODE",
	TRIG_LEVEL: "TRIG:LEV",
	TRIG_EDGE:  "TRIG:EDGE",
	GATE_MODE:  "GATE:MODE",
	GATE_LEVEL: "GATE:LEV",
	GATE_LOGIC: "GATE:LOGIC",

	CHANNEL_MODE:  "CMOD",
	CHANNEL_STATE: "STATE",
	DELAY:         "DELAY",
	WIDTH:         "WIDT",
	OUTPUT_MODE:   "OUTP:MODE",
	AMPLITUDE:     "OUTP:AMPL",
	POLARITY:      "POL",
	CHANNEL_GATE:  "CGATE",
	CHANNEL_LOGIC: "CLOGIC",
}

// pulse builds ":PULSEn:<node>"
func pulse(index int, node string) string {
	return protocol.Path("PULSE"+strconv.Itoa(index), node)
}

// systemNode builds ":PULSE0:<node>"
func systemNode(node string) string {
	return pulse(System, node)
}
