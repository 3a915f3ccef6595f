// Package aa provides a client for an ERC-4337 sponsor gateway.
//
// The gateway quotes paymaster sponsorship for unsigned UserOperations
// and relays signed operations to a bundler. This package implements
// the gateway's wire protocol and is designed to be used as a
// standalone SDK.
//
// Example usage:
//
//	import "github.com/heavenlabs/scrobbled/pkg/aa"
//
//	client, err := aa.NewClient(aa.Config{
//	    GatewayURL: "https://sponsor.example.org",
//	    APIKey:     "your-api-key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := client.CheckEntryPoint(ctx, entryPoint); err != nil {
//	    log.Fatal(err) // gateway targets a different EntryPoint
//	}
//
//	quote, err := client.QuotePaymaster(ctx, op)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	op.PaymasterAndData = quote.PaymasterAndData
//
// After signing, relay the operation with Client.SendUserOp.
package aa
