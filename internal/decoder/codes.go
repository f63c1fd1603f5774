package decoder

import "strings"

// emmMessageTypes names the EPS mobility management message types seen on the NAS-EPS channel.
var emmMessageTypes = map[string]string{
	"0x41": "Attach Request",
	"0x42": "Attach Accept",
	"0x43": "Attach Complete",
	"0x44": "Attach Reject",
	"0x45": "Detach Request",
	"0x46": "Detach Accept",
	"0x47": "TAU Request",
	"0x48": "TAU Accept",
	"0x49": "TAU Complete",
	"0x4a": "TAU Reject",
	"0x4b": "Extended Service Request",
	"0x4c": "Service Reject",
	"0x4d": "GUTI Reallocation Command",
	"0x4e": "GUTI Reallocation Complete",
	"0x4f": "Authentication Request",
	"0x50": "Authentication Response",
	"0x51": "Identity Request",
	"0x52": "Identity Response",
	"0x53": "Security Mode Command",
	"0x54": "Security Mode Complete",
	"0x55": "EMM Status",
	"0x56": "Identity Response",
	"0x57": "Spare",
	"0x61": "EMM Information",
}

// mm5GSMessageTypes names the 5GS mobility management message types seen on the NAS-5GS channel.
var mm5GSMessageTypes = map[string]string{
	"0x41": "Registration request",
	"0x42": "Registration accept",
	"0x43": "Registration complete",
	"0x45": "Deregistration request",
	"0x46": "Deregistration accept",
	"0x4c": "Service request",
	"0x4e": "Service accept",
	"0x5c": "Identity response",
	"0x61": "EMM Information",
	"0x67": "UL NAS transport",
	"0x68": "DL NAS transport",
}

// rrcOnlyCode marks NAS-5GS lines carrying only RRC setup information.
const rrcOnlyCode = "rrconly"

// emmMessageName returns the EMM message name for a lowercased code.
func emmMessageName(code string) string {
	if strings.HasPrefix(code, "0x") {
		if name, ok := emmMessageTypes[code]; ok {
			return name
		}
	}
	return "packet=" + code
}

// mm5GSMessageName returns the 5GS MM message name for code.
func mm5GSMessageName(code string) string {
	if name, ok := mm5GSMessageTypes[code]; ok {
		return name
	}
	if !strings.HasPrefix(code, "0x") && strings.EqualFold(code, rrcOnlyCode) {
		return sourceRRCSetupRequest
	}
	return "packet=" + code
}
