package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is an ethclient bound to the chain it was dialed on.
type Client struct {
	*ethclient.Client
	chainID *big.Int
}

// Dial connects to an RPC endpoint and reads its chain id.
func Dial(ctx context.Context, url string) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	id, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &Client{Client: ec, chainID: id}, nil
}

// ID returns the chain id read at dial time.
func (c *Client) ID() *big.Int {
	return new(big.Int).Set(c.chainID)
}
