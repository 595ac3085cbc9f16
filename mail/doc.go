// Package mail delivers the engine's outbound messages: one-time codes and
// password reset links.
//
// The [Mailer] interface keeps the engine testable; [SMTP] is the production
// implementation on gomail. Message bodies are built here so the engine
// never formats user-facing text.
package mail
