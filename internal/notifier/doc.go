// Package notifier delivers short operator notices (for example "your
// scheduled post failed") to private chats.
//
// Notices go through a queue with a single rate-limited worker. Each notice
// may carry a dedup key; a key seen within the dedup window is dropped so a
// channel that keeps failing does not flood its owner.
package notifier
