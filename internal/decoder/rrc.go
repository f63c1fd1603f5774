package decoder

import (
	"strconv"
	"strings"

	"github.com/mrzor/cellwatch/internal/identity"
)

// Source message labels.
const (
	sourceIdentityResponse = "Identity Response"
	sourcePaging           = "Paging"
	sourcePaging5G         = "Paging(5G)"
	sourceReconfiguration  = "RRCReconfiguration"
	sourceConnRequest      = "RRCConnectionRequest"
	sourceRRCSetupRequest  = "RRC Setup Request"
	sourceRRCSetupPart1    = "RRC Setup Request (Part1)"
	sourceRRCSetupPart2    = "RRC Setup Request (Part2)"
	sourceIMEISV           = "IMEISV"
	sourceMSIN             = "MSIN"
	sourceSIB1             = "SIB1 update"
	sourceSIB1NSA          = "SIB1(5G) update"
	sourceSIB1SA           = "SIB1(5G-SA) update"
)

// handleIMEISV: frame, imeisv.
func handleIMEISV(d *Decoder, f []string) string {
	if f[1] == "" {
		return ReasonNoIdentifier
	}
	d.emit(identity.CategoryIMEISV, identity.CategoryIMEISV, f[1], sourceIdentityResponse, annotateCell)
	return ""
}

// handlePaging4G: frame, m-TMSI, IMSI digits.
// Every valid temporary id in either field is an m-TMSI; the IMSI field is also searched for
// full IMSIs, which are reported without context.
func handlePaging4G(d *Decoder, f []string) string {
	emitted := 0
	for _, field := range f[1:3] {
		for _, tok := range splitTokens(field) {
			if identity.IsValidTemporaryID(tok) {
				d.emit(identity.CategoryMTMSI, identity.CategoryMTMSI, tok, sourcePaging, annotateCellMME)
				emitted++
			}
		}
	}
	for _, tok := range splitTokens(f[2]) {
		if identity.IsValidIMSI(tok) {
			d.emit(identity.CategoryIMSI, identity.CategoryIMSI, tok, sourcePaging, annotateNone)
			emitted++
		}
	}
	if emitted == 0 {
		return ReasonNoIdentifier
	}
	return ""
}

// handlePaging5G: frame, 5G-S-TMSI.
func handlePaging5G(d *Decoder, f []string) string {
	emitted := 0
	for _, tok := range splitTokens(f[1]) {
		if identity.IsValidTemporaryID(tok) {
			d.emit(identity.Category5GTMSI, identity.Category5GTMSI, tok, sourcePaging5G, annotateCellMME)
			emitted++
		}
	}
	if emitted == 0 {
		return ReasonNoIdentifier
	}
	return ""
}

// handleNewUEIdentity: frame, newUE-Identity.
func handleNewUEIdentity(d *Decoder, f []string) string {
	if f[1] == "" {
		return ReasonNoIdentifier
	}
	d.emit(identity.CategoryUEIdentity, identity.CategoryUEIdentity, f[1], sourceReconfiguration, annotateCell)
	return ""
}

// handleConnectionRequest: frame, randomValue, mmec, m-TMSI.
// The MME code arrives in hex and is stored in decimal.
func handleConnectionRequest(d *Decoder, f []string) string {
	frame, random, mmec, mTMSI := f[0], f[1], f[2], f[3]
	if frame == "" && random == "" && mmec == "" && mTMSI == "" {
		return ReasonEmpty
	}

	used := false
	if mmec != "" {
		code, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(mmec), "0x"), 16, 64)
		if err != nil {
			d.logger.Debug("ignoring unparseable mmec", "mmec", mmec, "error", err)
		} else {
			d.ctxs.MME.Observe("", strconv.FormatUint(code, 10))
			used = true
		}
	}

	if identity.IsValidTemporaryID(random) {
		d.emit(identity.CategoryRandom, identity.CategoryRandom, random, sourceConnRequest, annotateCellMME)
		used = true
	}
	if identity.IsValidTemporaryID(mTMSI) {
		d.emit(identity.CategoryMTMSI, identity.CategoryMTMSI, mTMSI, sourceConnRequest, annotateCellMME)
		used = true
	}

	if !used {
		return ReasonNoIdentifier
	}
	return ""
}
