// Package harden applies remediations for auto-fixable audit findings and
// rolls them back.
//
// SecureClaw mutates the state directory of a running agent host. A fix that
// goes wrong must never leave the host worse off than before, so every run
// follows the same discipline.
//
// # Threat Model
//
// H1 - Loose Permissions: the state directory, openclaw.json and credential
// stores readable or writable by other local users leak tokens and let them
// rewrite agent behaviour. The permissions module tightens files to 0600 and
// directories to 0700. These fixes are low risk.
//
// H2 - Exposed Gateway: a gateway bound beyond loopback lets the network
// drive the agent. The config module rebinds it to loopback. This can break a
// deliberate remote setup, so it is high risk.
//
// H3 - Unchecked Execution: exec approvals turned off or elevated tools
// enabled let the agent run host commands unattended. The config module
// restores approvals and disables elevated tools (high risk).
//
// H4 - Leaky Logs and Runaway Spend: unredacted logs and missing cost limits
// are fixed by enabling tool-output redaction and adding default spend limits
// (low risk).
//
// # Run Discipline
//
// Exclusive: a run holds the state-directory lock; a concurrent harden or
// rollback fails with backup.ErrLocked instead of interleaving.
//
// Backup first: the union of every file a run will touch is snapshotted before
// the first write. If the snapshot fails the run fails and nothing changes.
// A run that would touch nothing takes no snapshot.
//
// Low risk by default: without Full only low-risk fixes apply. Skipped fixes
// are reported, never prompted for; prompting belongs to the caller.
//
// Module isolation: each module records its own applied actions and errors.
// A failing or panicking fix never stops the fixes after it.
package harden
