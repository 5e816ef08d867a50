// Package cli is the interactive command-line client of the referral
// service.
//
// Commands before login: register, login, exit. After login:
//
//	code              show your referral code
//	code new          issue a code (replaces the current one)
//	code rm           retire your code
//	code email <e>    show the active code of the user with email e
//	referrals [id]    list users referred by id (default: you)
//	logout, exit
//
// The REPL is started with App.Run and blocks until the user exits or
// input ends.
package cli
