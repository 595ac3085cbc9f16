// Package middleware provides net/http wrappers around engine token
// validation.
//
// [Guard] protects routes with an access token; [FreshGuard] additionally
// demands a token minted by a password login, for operations like account
// deletion. Handlers read the verified caller with [IdentityFromContext].
//
// Responses follow the envelope convention: HTTP 200 with the failure
// classification in the JSON body.
package middleware
