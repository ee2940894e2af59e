// Package wisun drives a Wi-SUN Route-B module (BP35A1 class) over its
// SKSTACK IP text command interface.
//
// The client handles the full session lifecycle against a smart meter:
// registering Route-B credentials, active-scanning for the meter's PAN,
// PANA authentication (SKJOIN), and exchanging ECHONET Lite frames as
// secured UDP datagrams (SKSENDTO / ERXUDP).
//
// Basic usage:
//
//	client, err := wisun.Connect(ctx, wisun.Config{
//		Device: "serial:///dev/ttyUSB0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.SetOnDatagram(func(dg wisun.Datagram) {
//		// dg.Data is a raw ECHONET Lite frame
//	})
//
//	if err := client.SetCredentials(ctx, routeBID, password); err != nil {
//		log.Fatal(err)
//	}
//	desc, err := client.Scan(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.Join(ctx, desc); err != nil {
//		log.Fatal(err)
//	}
//	err = client.Send(ctx, frame.Encode())
//
// The transport is either a local serial port ("serial:///dev/ttyUSB0")
// or a TCP bridge such as ser2net ("tcp://192.168.1.50:3610").
//
// The client never re-joins on its own. Transport failures and PANA
// session loss (EVENT 26/29) both surface through the disconnect
// callback; session loss is reported as ErrSessionLost so the owner can
// tell it apart from a dead device and re-run Scan/Join on the same
// client.
package wisun
