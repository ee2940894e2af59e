// Package echonet implements the ECHONET Lite frame codec used on the
// B-route link to a smart electric energy meter.
//
// A frame carries a transaction id, source and destination object codes
// (SEOJ/DEOJ), a service code (ESV), and an ordered list of properties
// (EPC/PDC/EDT). This package translates between raw byte buffers and an
// immutable Frame value, and provides the correlation check that matches
// a response to the request that caused it.
//
// # Wire Format
//
// All integers are big-endian:
//
//	Byte 0-1:  Fixed header 0x10 0x81 (EHD)
//	Byte 2-3:  Transaction id (TID)
//	Byte 4-6:  Source object code (SEOJ)
//	Byte 7-9:  Destination object code (DEOJ)
//	Byte 10:   Service code (ESV)
//	Byte 11:   Property count (OPC)
//	Then per property: EPC(1), PDC(1), EDT(PDC bytes)
//
// # Usage
//
//	req, err := echonet.NewGetFrame(echonet.NewTransactionID(),
//	    echonet.ObjectController, echonet.ObjectSmartMeter,
//	    echonet.EPCInstantPower)
//	if err != nil {
//	    return err
//	}
//	send(req.Encode())
//
//	resp, err := echonet.ParseFrame(received)
//	if err != nil || !resp.IsResponseTo(req) {
//	    return err
//	}
//	watts, err := resp.PropertyUint64(echonet.EPCInstantPower)
//
// # Thread Safety
//
// The codec is pure and stateless. Frame and Property are immutable
// values and may be shared across goroutines without locks. Transport
// I/O, retries and timeouts belong to the wisun and meter packages.
package echonet
