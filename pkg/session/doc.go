/*
Package session is the registry of editing sessions.

It builds one stack.Stack per session id on demand, restoring persisted
snapshots, and shares options such as distributed locking, lifecycle hooks
and logging across every stack it hands out.
*/
package session
