// Package logging configures zap for the kernel and its tools.
//
// Production loggers write JSON; development loggers write coloured
// console lines with stack traces on errors. Kernel code reports
// environment ids and user addresses through EnvID and VA so they read
// the same in logs as on the console:
//
//	log.Info("env created", logging.EnvID("envid", id))
//	log.Warn("user fault", logging.VA("va", va), zap.Error(err))
package logging
