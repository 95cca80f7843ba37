package protocoltest

import "fmt"

// InstrumentValues is a register map for a four channel generator in
// continuous mode with pulse gating. Channel n has a delay of n*100 ns.
func InstrumentValues() map[string]string {
	values := map[string]string{
		"*IDN":               "BNC,575-4,31183,2.4.1",
		"*LBL":               `"bench"`,
		":INST:STATE":        "1",
		":PULSE0:MODE":       "NORM",
		":PULSE0:PER":        "0.001",
		":PULSE0:TRIG:MODE":  "TRIG",
		":PULSE0:TRIG:LEV":   "2.5",
		":PULSE0:TRIG:EDGE":  "RIS",
		":PULSE0:GATE:MODE":  "PULS",
		":PULSE0:GATE:LEV":   "1.2",
		":PULSE0:GATE:LOGIC": "HIGH",
	}
	for n := 1; n <= 4; n++ {
		p := fmt.Sprintf(":PULSE%d:", n)
		values[p+"CMOD"] = "NORM"
		values[p+"STATE"] = "1"
		values[p+"WIDT"] = "0.000000010"
		values[p+"DELAY"] = fmt.Sprintf("0.000000%d00", n)
		values[p+"OUTP:MODE"] = "ADJ"
		values[p+"OUTP:AMPL"] = "4.0"
		values[p+"POL"] = "NORM"
		values[p+"CGATE"] = "DIS"
		values[p+"CLOGIC"] = "HIGH"
	}
	return values
}
