// Package guest gives anonymous visitors a temporary, fully authenticated
// account and converts it into a permanent one later without changing the
// account id.
//
// Guest lifecycle:
//   - Registry is the only writer of guest records. CreateGuest inserts the
//     account and its record in one transaction and retries username
//     collisions with a suffixed name up to Config.MaxNameRetries times.
//   - Convert removes the guest record, writes the new credentials and clears
//     the is_guest flag in one transaction, then publishes a ConvertedEvent
//     to every subscriber.
//   - DeleteExpired and the Sweeper remove guests older than Config.MaxAge.
//     Each record is deleted in its own transaction, so an interrupted sweep
//     is finished by the next one.
//
// Authentication:
//   - GuestBackend logs guests in by username alone and never accepts a
//     regular account. Chain it with PasswordBackend through Backends.
//   - CookieSessions keys sessions by account id, so a converted guest stays
//     logged in.
//
// The middleware/guestware package turns all of this into fiber middleware:
// a principal loader and the AllowGuest, RequireGuest and RequireRegular
// gates.
package guest
