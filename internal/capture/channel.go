// Package capture describes the ten dissector channels and opens their line streams.
//
// Each channel is one external dissector invocation with a display filter and an ordered field
// list. The filter, the field order and the separator form the wire contract the decoders parse;
// they must match the invocation exactly.
package capture

import (
	"errors"
	"fmt"
)

// Channel names one signaling channel.
type Channel string

// Channels in the order they are started.
const (
	IMEISV4G             Channel = "imeisv-4g"
	Paging4G             Channel = "paging-4g"
	SIB14G               Channel = "sib1-4g"
	SIB15GNSA            Channel = "sib1-5g-nsa"
	SIB15GSA             Channel = "sib1-5g-sa"
	Paging5GSA           Channel = "paging-5g-sa"
	RRCNewUEIdentity     Channel = "rrc-new-ue-identity"
	RRCConnectionRequest Channel = "rrc-connection-request"
	NASEPS               Channel = "nas-eps"
	NAS5GS               Channel = "nas-5gs"
)

// ErrUnknownChannel is returned when a channel name is not one of the defined channels.
var ErrUnknownChannel = errors.New("unknown channel")

// Spec is the dissector invocation contract for one channel.
type Spec struct {
	Channel   Channel
	Filter    string
	Fields    []string
	Separator string
	// MergeStderr routes the dissector's stderr into the line stream. The decoder drops the
	// warning lines this produces.
	MergeStderr bool
}

var specs = []Spec{
	{
		Channel:   IMEISV4G,
		Filter:    "gsm_a.imeisv and not icmp",
		Fields:    []string{"frame.number", "gsm_a.imeisv"},
		Separator: ",",
	},
	{
		Channel:   Paging4G,
		Filter:    "lte-rrc.PagingRecord_element and not icmp",
		Fields:    []string{"frame.number", "lte-rrc.m_TMSI", "lte-rrc.IMSI_Digit"},
		Separator: ",",
	},
	{
		Channel:   SIB14G,
		Filter:    "lte-rrc.bCCH_DL_SCH_Message.message and not icmp",
		Fields:    []string{"frame.number", "lte-rrc.MCC_MNC_Digit", "lte-rrc.trackingAreaCode", "lte-rrc.cellIdentity"},
		Separator: ",",
	},
	{
		Channel:   SIB15GNSA,
		Filter:    "nr-rrc.bCCH_DL_SCH_Message.message and not icmp",
		Fields:    []string{"nr-rrc.MCC_MNC_Digit", "nr-rrc.trackingAreaCode", "nr-rrc.cellIdentity"},
		Separator: ",",
	},
	{
		Channel:   SIB15GSA,
		Filter:    "nr-rrc and not icmp",
		Fields:    []string{"frame.number", "nr-rrc.MCC_MNC_Digit", "nr-rrc.trackingAreaCode", "nr-rrc.cellIdentity"},
		Separator: ",",
	},
	{
		Channel:   Paging5GSA,
		Filter:    "nr-rrc.pagingRecordList and not icmp",
		Fields:    []string{"frame.number", "nr-rrc.ng_5G_S_TMSI"},
		Separator: ",",
	},
	{
		Channel:   RRCNewUEIdentity,
		Filter:    "lte-rrc.newUE_Identity and not icmp",
		Fields:    []string{"frame.number", "lte-rrc.newUE_Identity"},
		Separator: ",",
	},
	{
		Channel:     RRCConnectionRequest,
		Filter:      "lte-rrc.rrcConnectionRequest_element and not icmp",
		Fields:      []string{"frame.number", "lte-rrc.randomValue", "lte-rrc.mmec", "lte-rrc.m_TMSI"},
		Separator:   ",",
		MergeStderr: true,
	},
	{
		Channel: NASEPS,
		Filter:  "nas-eps and not icmp",
		Fields: []string{
			"nas-eps.emm.m_tmsi",
			"e212.imsi",
			"e212.assoc.imsi",
			"nas-eps.emm.mme_grp_id",
			"nas-eps.emm.mme_code",
			"nas-eps.nas_msg_emm_type",
		},
		Separator: "\t",
	},
	{
		Channel: NAS5GS,
		Filter:  "(nas-5gs or nr-rrc.ng_5G_S_TMSI_Part1 or nr-rrc.ng_5G_S_TMSI_Part2 or nr-rrc.randomValue) and not icmp",
		Fields: []string{
			"frame.number",
			"nas-5gs.5g_tmsi",
			"nas-5gs.mm.suci.msin",
			"nas-5gs.mm.imeisv",
			"nas-5gs.mm.message_type",
			"nas-5gs.mm.5gs_reg_type",
			"nr-rrc.ng_5G_S_TMSI_Part1",
			"nr-rrc.ng_5G_S_TMSI_Part2",
			"nr-rrc.randomValue",
		},
		Separator: "\t",
	},
}

// Specs returns the contract of every channel in start order.
func Specs() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// Channels returns every channel in start order.
func Channels() []Channel {
	out := make([]Channel, len(specs))
	for i, s := range specs {
		out[i] = s.Channel
	}
	return out
}

// Lookup returns the contract of a channel.
func Lookup(ch Channel) (Spec, error) {
	for _, s := range specs {
		if s.Channel == ch {
			return s, nil
		}
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
}

// TsharkArgs returns the dissector arguments for a channel capturing on iface.
func TsharkArgs(spec Spec, iface string) []string {
	args := []string{"-i", iface, "-Y", spec.Filter, "-T", "fields"}
	for _, f := range spec.Fields {
		args = append(args, "-e", f)
	}
	args = append(args, "-E", "separator="+spec.Separator, "-l")
	if !spec.MergeStderr {
		args = append(args, "-Q")
	}
	return args
}
