// Package builtin provides the stock checks that ship with pulse. Each one
// reads the host database handed to it as the check's data, either a
// *sql.DB or a *store.Store.
//
//	reg := checks.NewRegistry()
//	if err := builtin.Register(reg, builtin.WithEventLead(time.Hour)); err != nil {
//		return err
//	}
package builtin
