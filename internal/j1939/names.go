package j1939

import "fmt"

var sourceNames = map[uint8]string{
	0:  "Engine #1",
	1:  "Engine #2",
	3:  "Transmission",
	11: "Brakes",
	15: "Retarder",
	23: "Instrument Cluster",
	28: "Navigation",
	40: "Cab Controller",
}

var pgnNames = map[uint32]string{
	59904: "Request",
	60928: "Address Claimed",
	61443: "EEC2 Electronic Engine Controller 2",
	61444: "EEC1 Electronic Engine Controller 1",
	65226: "DM1 Active Diagnostic Trouble Codes",
	65262: "ET1 Engine Temperature 1",
	65263: "EFL/P1 Engine Fluid Level/Pressure 1",
	65265: "CCVS Cruise Control/Vehicle Speed",
	65266: "LFE Fuel Economy",
	65270: "IC1 Inlet/Exhaust Conditions 1",
	65271: "VEP1 Vehicle Electrical Power 1",
	65272: "TRF1 Transmission Fluids 1",

	StandardPGN: "Standard frame",
}

// SourceName returns the controller name for a source address, or "Unknown".
func SourceName(sa uint8) string {
	if n, ok := sourceNames[sa]; ok {
		return n
	}
	return "Unknown"
}

// PGNName returns a short description of a PGN, or the PGN number.
func PGNName(pgn uint32) string {
	if n, ok := pgnNames[pgn]; ok {
		return n
	}
	return fmt.Sprintf("PGN %d", pgn)
}
