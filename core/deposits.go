package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
)

// ParseDepositRequests extracts the EIP-6110 deposit request data from the
// logs of the already-built block receipts. The returned bytes are the
// concatenated deposit records without the leading request-type byte; empty
// when the block contains no deposit events.
func ParseDepositRequests(config *params.ChainConfig, receipts []*types.Receipt) ([]byte, error) {
	var deposits []byte
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			if log.Address != config.DepositContractAddress {
				continue
			}
			request, err := types.DepositLogToRequest(log.Data)
			if err != nil {
				return nil, fmt.Errorf("unable to parse deposit data: %w", err)
			}
			deposits = append(deposits, request...)
		}
	}
	return deposits, nil
}
