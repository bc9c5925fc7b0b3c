package kafka

// Topic definitions for Kafka event streaming
const (
	// Share accounting events
	TopicDeposits    = "pool.deposits"
	TopicWithdrawals = "pool.withdrawals"

	// Governance events
	TopicRebalances = "pool.rebalances"
	TopicFees       = "pool.fees"

	// Reconciliation events
	TopicDrift  = "pool.drift"
	TopicResync = "pool.resync"
)
