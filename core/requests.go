package core

// Request type bytes per the EIP-7685 request-encoding convention. Request
// contents are chain-specific, already-encoded bytes; this module never
// parses them.
const (
	DepositRequestType       = byte(0x00) // EIP-6110
	WithdrawalRequestType    = byte(0x01) // EIP-7002
	ConsolidationRequestType = byte(0x02) // EIP-7251
)

// Requests accumulates opaque protocol request payloads, one element per
// request type, each prefixed with its single type byte. Groups keep the
// order they were pushed in, which the executor arranges to be ascending by
// type.
type Requests [][]byte

// Push appends a request group of the given type. Empty payloads are
// dropped: an inactive or silent system contract contributes no group.
func (r *Requests) Push(requestType byte, data []byte) {
	if len(data) == 0 {
		return
	}
	group := make([]byte, len(data)+1)
	group[0] = requestType
	copy(group[1:], data)
	*r = append(*r, group)
}
