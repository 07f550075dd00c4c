/*
Package recovery walks a node's configured recovery actions under its
retry policy, verifying each attempt with both the action's exit code
and a fresh health probe before declaring success. At most one
recovery run proceeds per node at a time; a concurrent second call
observes AlreadyInProgress rather than queueing.
*/
package recovery
