package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// getPrefix is the prefix of a REQ payload requesting a file.
const getPrefix = "GET /"

// resendPrefix is the prefix of a REQ payload requesting selective resend.
const resendPrefix = "RESEND "

// Request is a parsed REQ payload: either a fetch of Name, or a Resend list.
type Request struct {
	Name   string   // set when IsResend is false
	Resend []uint32 // set when IsResend is true

	IsResend bool
}

// ParseRequest parses the UTF-8 payload of a REQ packet per the grammar in
// §6: "GET /<name>" or "RESEND <seq>[,<seq>...]". Trailing newlines are
// tolerated. Any other payload is rejected.
func ParseRequest(payload []byte) (Request, error) {
	s := strings.TrimRight(string(payload), "\r\n")

	if strings.HasPrefix(s, resendPrefix) {
		return parseResend(s[len(resendPrefix):])
	}
	if strings.HasPrefix(s, getPrefix) {
		name := s[len(getPrefix):]
		if name == "" {
			return Request{}, fmt.Errorf("wire: empty name in GET request")
		}
		return Request{Name: name}, nil
	}

	return Request{}, fmt.Errorf("wire: unrecognised request payload %q", s)
}

func parseResend(list string) (Request, error) {
	parts := strings.Split(list, ",")
	seqs := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Request{}, fmt.Errorf("wire: bad seq %q in RESEND: %w", p, err)
		}
		seqs = append(seqs, uint32(n))
	}
	if len(seqs) == 0 {
		return Request{}, fmt.Errorf("wire: RESEND with no sequence numbers")
	}
	return Request{IsResend: true, Resend: seqs}, nil
}

// BuildGet renders the REQ payload for fetching name.
func BuildGet(name string) []byte {
	return []byte(getPrefix + name)
}

// BuildResend renders the REQ payload selectively resending seqs. The caller
// is expected to cap len(seqs) (e.g. at receiver.Options.MaxResendBatch) before
// calling this.
func BuildResend(seqs []uint32) []byte {
	var b strings.Builder
	b.WriteString(resendPrefix)
	for i, s := range seqs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(s), 10))
	}
	return []byte(b.String())
}
