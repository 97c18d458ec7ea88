/*
Package ddns keeps a single DNS A record pointed at the current public IP address.

Usage will always start with [ddns.New],
which returns a [Client] for one host prefix of one zone.
New requires a [RecordStore] implementation for a DNS provider,
registered with [UsingAliyunCLI], [UsingCloudflare] or [UsingRecordStore].
The public address comes from a [Resolver]; see [WebResolver], [OpenDNSResolver],
[InterfaceResolver] and [FromString].

[Client.Reconcile] performs one check-and-update attempt.
[Client.Run] repeats it on an interval until its context is cancelled.
A [Pinger] may run alongside to reveal the NAT-mapped endpoint to a remote listener.
*/
package ddns
