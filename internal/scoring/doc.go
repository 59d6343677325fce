// Package scoring is the screen-time compliance engine.
//
// A day of usage flows through four steps: the class policy is resolved for
// the date (Resolve), the usage event is classified against that snapshot
// (Evaluate), the verdict is applied to the student's ledger exactly once per
// date (Apply), and badges and level are derived from the ledger on demand
// (Milestones, LevelOf). Everything here is a pure function of its inputs
// except StudentLocks, which callers use to serialise Apply per student.
package scoring
