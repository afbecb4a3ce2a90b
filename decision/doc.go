// Package decision picks which checks a heartbeat cycle should run.
//
// LLMDecider renders the situation snapshot and the registered checks into
// a prompt, asks a Backend for a JSON object of the form
//
//	{"checks_to_run": ["calendar.upcoming"], "reasoning": "meeting in 20 minutes"}
//
// and decodes it strictly. Anything other than exactly that object is a
// MALFORMED_DECISION error. The decider never falls back on its own; the
// engine owns fallback selection.
//
// Backends wrap an llm.Provider (FromProvider) or a plain function
// (BackendFunc), which is what tests use.
package decision
