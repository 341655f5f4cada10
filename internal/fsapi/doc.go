// Package fsapi is a client for the FSAPI remote-control protocol spoken by
// Frontier Silicon based network audio receivers (internet radios and
// streamers sold by Medion, Hama, Auna, Roberts, Revo and others).
//
// FSAPI is a plain HTTP GET protocol. Every response is a small XML document
// (an <fsapiResponse> envelope carrying a <status> and an optional payload).
// The client hides the protocol's session handling from callers:
//
//   - The API root ("webfsapi") is discovered once from the device's
//     bootstrap URL (usually http://<host>:80/device).
//   - A session is created with the device PIN only when an operation needs
//     one. Reads do not take the device's exclusive session unless the client
//     is configured as intrusive.
//   - When the device answers with a non-success HTTP status the session is
//     assumed stale, a new one is created and the request is re-issued once.
//
// # Error Handling
//
// The low-level typed accessors (GetText, GetU8, GetU32, GetList, Set) return
// an error alongside the value so callers can tell a failed read apart from a
// legitimate zero. Errors are classified with the sentinels in errors.go:
//
//	v, err := client.GetU8(ctx, fsapi.PathVolume)
//	if errors.Is(err, fsapi.ErrDiscovery) {
//	    // device unreachable
//	}
//
// The convenience accessors (Power, Volume, Mode, ...) never return errors.
// They log the failure and collapse it to a type-appropriate default, so a
// failed read looks like "the device reports the default value".
//
// # Usage
//
//	client, err := fsapi.New(fsapi.Config{
//	    DeviceURL: "http://192.168.1.40:80/device",
//	    PIN:       "1234",
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	if client.SetPower(ctx, true) {
//	    log.Info("radio on", "volume", client.Volume(ctx))
//	}
//
// # Thread Safety
//
// A Client may be shared between goroutines. Endpoint discovery and session
// creation are serialised so concurrent callers converge on one session, and
// the capability cache is filled at most once.
package fsapi
