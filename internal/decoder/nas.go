package decoder

import (
	"strings"

	"github.com/mrzor/cellwatch/internal/identity"
)

// nasEPSFallback accepts a whitespace-separated m-TMSI, IMSI and message code triple.
func nasEPSFallback(line string) ([]string, bool) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return nil, false
	}
	return []string{parts[0], parts[1], "", "", "", parts[2]}, true
}

// handleNASEPS: m-TMSI, IMSI, associated IMSI, MME group, MME code, message codes.
// One event is emitted per message code, carrying the best identifier on the line:
// IMSI, then associated IMSI, then m-TMSI.
func handleNASEPS(d *Decoder, f []string) string {
	mTMSI, imsi, assoc, group, code, rawCodes := f[0], f[1], f[2], f[3], f[4], f[5]

	d.ctxs.MME.Observe(group, code)

	display, value, ok := pickNASIdentifier(imsi, assoc, mTMSI)
	if !ok {
		return ReasonNoIdentifier
	}

	emitted := 0
	for _, c := range splitTokens(strings.ToLower(rawCodes)) {
		c = strings.TrimPrefix(c, "packet=")
		if c == "" {
			continue
		}
		d.emit(identity.CategoryComposite, display, value, emmMessageName(c), annotateCellMME)
		emitted++
	}
	if emitted == 0 {
		return ReasonNoIdentifier
	}
	return ""
}

func pickNASIdentifier(imsi, assoc, mTMSI string) (identity.Category, string, bool) {
	switch {
	case identity.IsValidIMSI(imsi):
		return identity.CategoryIMSI, imsi, true
	case identity.IsValidIMSI(assoc):
		return identity.CategoryIMSI, assoc, true
	case identity.IsValidTemporaryID(mTMSI):
		return identity.CategoryMTMSI, mTMSI, true
	default:
		return "", "", false
	}
}

// handleNAS5GS: frame, 5G-TMSI, MSIN, IMEISV, message codes, registration type, S-TMSI part 1,
// S-TMSI part 2, randomValue. Registration type is not used.
func handleNAS5GS(d *Decoder, f []string) string {
	gTMSI, msin, imeisv, rawCodes := f[1], f[2], f[3], f[4]
	part1, part2, random := f[6], f[7], f[8]

	emitted := 0
	emit := func(category, display identity.Category, value, source string) {
		d.emit(category, display, value, source, annotateCell)
		emitted++
	}

	for _, tok := range splitTokens(imeisv) {
		emit(identity.CategoryComposite, identity.CategoryIMEISV, tok, sourceIMEISV)
	}
	for _, tok := range splitTokens(msin) {
		emit(identity.CategoryMSIN, identity.CategoryMSIN, tok, sourceMSIN)
	}
	for _, tok := range splitTokens(random) {
		if identity.IsValidTemporaryID(tok) {
			emit(identity.CategoryComposite, identity.CategoryRandom, tok, sourceRRCSetupRequest)
		}
	}

	parts := []struct {
		source string
		value  string
	}{
		{sourceRRCSetupPart1, part1},
		{sourceRRCSetupPart2, part2},
		{sourceRRCSetupRequest, strings.TrimSpace(part1 + part2)},
	}
	for _, p := range parts {
		if identity.IsValidTemporaryID(p.value) {
			emit(identity.CategoryComposite, identity.Category5GTMSI, p.value, p.source)
		}
	}

	codes := splitTokens(rawCodes)
	for _, tmsi := range splitTokens(gTMSI) {
		if !identity.IsValidTemporaryID(tmsi) {
			continue
		}
		for _, c := range codes {
			emit(identity.CategoryComposite, identity.Category5GTMSI, tmsi, mm5GSMessageName(c))
		}
	}

	if emitted == 0 {
		return ReasonNoIdentifier
	}
	return ""
}
