/*
Package chat runs the ingestion pipeline and its control surface.

A Service owns one ingestion task per listened (platform, channel) pair. Each task
reads normalized events from a platform adapter, stores every chat line unpublished
and forwards it to the admin feed. Moderators approve messages through Publish, which
flips the stored flag and re-sends the canonical row on the client feed; that is the
only way a message reaches public viewers.

Lifecycle:

  - Listen is idempotent: a pair that is already running (or still connecting) is not
    started twice. Concurrent callers for the same pair share one connection attempt.
  - Unlisten cancels the task and returns without waiting for it to unwind.
  - A task that ends on its own (stream closed, fatal adapter error) removes itself
    from the registry, so a later Listen starts a fresh one.
  - At boot, AutoStart listens to every stored channel flagged listen=true.

Environment knobs are read by the config package: ADAPTER_CONNECT_TIMEOUT,
MAX_CONCURRENT_CONNECTS and STORE_WRITE_TIMEOUT.
*/
package chat
