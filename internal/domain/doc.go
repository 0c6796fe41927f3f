// Package domain models the files and conventions of the EnergyPlus
// building energy simulation engine.
//
// # Versions
//
// Engine releases are identified by "major.minor.patch" (e.g. "23.2.0").
// Input models (IDF files) declare the version they were written for in a
// Version object, which may span one or two lines:
//
//	Version,23.2;
//
//	Version,
//	  23.2;                    !- Version Identifier
//
// Compatibility between a model and the engine is decided on major.minor
// only. Models older than the engine can be upgraded with the chain of
// transition tools published with each release; models newer than the
// engine cannot be downgraded.
//
// The EnergyPlus GitHub repository tags releases as "v23.2.0". Older
// releases were sometimes tagged "v23.2", so lookups try both before
// falling back to the "develop" branch. See [TagCandidates].
//
// # Transition chain
//
// Supported single-step transitions:
//
//	22.1 → 22.2 → 23.1 → 23.2 → 24.1 → 24.2 → 25.1 → 25.2
//
// Each step is a separate executable named after its source and target
// versions, e.g. "Transition-V23-1-0-to-V23-2-0". See [TransitionPath].
//
// # Weather files
//
// EPW files start with eight header lines (LOCATION, DESIGN CONDITIONS,
// TYPICAL/EXTREME PERIODS, GROUND TEMPERATURES, HOLIDAYS/DAYLIGHT SAVINGS,
// COMMENTS 1, COMMENTS 2, DATA PERIODS) followed by one 35-field row per
// hour. Hours are 1-based: the observation for 00:00-01:00 is hour 1.
//
// Open-Meteo archive responses are converted to EPW by [ConvertToEPW].
// Missing values are filled with neutral defaults (20 °C, 50 % relative
// humidity, 1013.25 hPa) so the engine accepts the file.
//
// # Diagnostics
//
// Every run writes eplusout.err. Lines containing "** Warning **",
// "** Severe  **" or "**  Fatal  **" are counted by [ParseErrFile]; a run
// that reached "EnergyPlus Completed Successfully" without fatal errors is
// considered passed.
package domain
