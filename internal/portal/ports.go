package portal

import "context"

// Wallet is the capability to discover and authorize accounts on a wallet
// provider.
type Wallet interface {
	// Detect reports whether a provider is reachable. It never prompts.
	Detect(ctx context.Context) bool
	// CurrentAccounts returns accounts already authorized for this client.
	CurrentAccounts(ctx context.Context) ([]string, error)
	// RequestAccess asks the user to authorize an account and returns it.
	RequestAccess(ctx context.Context) (string, error)
}

// Ledger is the capability to read and write the wave contract.
type Ledger interface {
	FetchWaveCount(ctx context.Context) (uint64, error)
	FetchAllWaves(ctx context.Context) ([]Wave, error)
	// SubmitWave blocks until the transaction is mined and returns the
	// wave count read afterwards.
	SubmitWave(ctx context.Context, message string) (uint64, error)
	// SubscribeNewWave delivers every NewWave event until ctx is done, then
	// closes the channel.
	SubscribeNewWave(ctx context.Context) (<-chan Wave, error)
}
