package aa

// UserOperation is the packed ERC-4337 operation in the gateway's wire
// encoding: every field is a 0x-prefixed hex string. Empty byte fields
// are encoded as "0x".
type UserOperation struct {
	Sender             string `json:"sender"`
	Nonce              string `json:"nonce"`
	InitCode           string `json:"initCode"`
	CallData           string `json:"callData"`
	AccountGasLimits   string `json:"accountGasLimits"`
	PreVerificationGas string `json:"preVerificationGas"`
	GasFees            string `json:"gasFees"`
	PaymasterAndData   string `json:"paymasterAndData"`
	Signature          string `json:"signature"`
}

// Health is the gateway's health report.
type Health struct {
	OK         bool   `json:"ok"`
	ChainID    uint64 `json:"chainId"`
	EntryPoint string `json:"entryPoint"`
}

// PaymasterQuote is the gateway's sponsorship offer for an operation.
// ValidAfter and ValidUntil bound the sponsorship window in unix
// seconds.
type PaymasterQuote struct {
	PaymasterAndData string `json:"paymasterAndData"`
	ValidUntil       uint64 `json:"validUntil"`
	ValidAfter       uint64 `json:"validAfter"`
}

// SubmissionResult reports a relayed operation.
type SubmissionResult struct {
	UserOpHash string
	Sender     string
}
