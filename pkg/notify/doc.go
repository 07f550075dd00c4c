/*
Package notify implements the notification dispatcher: a priority
queue (failure alerts before recovery confirmations), a background
worker that hands each message to every registered Notifier, and a
retry queue with exponential backoff for notifiers reporting a
transient failure. Permanent failures and retry exhaustion are logged
and dropped; they never block other messages.
*/
package notify
