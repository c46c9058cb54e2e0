// Package keys derives account credentials from a password.
//
// # Overview
//
// A password and the public AuthParams for an account are stretched with PBKDF2 into a
// single hex string of pw_key_size bits. The first half is the server password, sent to
// the server to authenticate. The second half is the master key, which never leaves
// the device and wraps every per-item key.
//
// # Determinism
//
// DeriveCredentials is a pure function of (password, params). It is the only way two
// devices agree on the master key, so any change to the encoding here breaks
// cross-device decryption of existing items.
//
// # Registration
//
// New accounts pick their own params:
//
//	params, err := keys.NewRegistrationParams(email, keys.DefaultParams())
//	creds, err := keys.DeriveCredentials(password, params)
//
// The salt is SHA1(email + "SN" + nonce) and both salt and nonce are sent to the server
// so later logins can fetch them.
package keys
