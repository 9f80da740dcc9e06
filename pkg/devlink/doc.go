// Package devlink provides an embeddable connectivity lifecycle
// orchestrator for field devices.
//
// Devlink drives a device from boot through commissioning, network
// attachment and server resolution to an authenticated cloud session, then
// streams sensor samples and periodic keep-alives while recovering from
// network loss, session drops and decommissioning. It can be used as the
// standalone devlink CLI or embedded as a library.
//
// # Basic Usage
//
//	cfg := devlink.DefaultConfig()
//	cfg.Endpoint = "wss://broker.example.com/mqtt"
//	cfg.Iface = "wwan0"
//
//	d, err := devlink.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := d.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer d.Stop()
//
//	d.PostSample([]byte(`{"temp_c": 21.5}`))
//
// # Commissioning
//
// An uncommissioned device waits in the Commissioning state until both a
// certificate and a key have been installed through [Devlink.Gate]:
//
//	gate := d.Gate()
//	_ = gate.InstallCredential(devlink.CredentialCert, certPEM)
//	_ = gate.InstallCredential(devlink.CredentialKey, keyPEM)
//
// Errors map to console error codes through [Code]. Decommission clears the
// credentials and drops any live session.
//
// StoreIdentity persists the endpoint, client id or root CA. Stored values
// override the configuration from the next Start on:
//
//	_ = gate.StoreIdentity(devlink.CredentialEndpoint, []byte("iot.example.com"))
//
// # Plugins
//
// Plugins receive a [PluginConfig] with the commissioning surface and can
// subscribe to cloud status updates. The provisioning plugin in
// plugins/provisioning accepts credentials dropped into a directory.
//
// # Event Handling
//
// Implement [EventHandler] (or embed [NoopEventHandler]) and pass it with
// [WithEventHandler] to observe process state changes, lifecycle
// transitions and cloud status updates.
package devlink
