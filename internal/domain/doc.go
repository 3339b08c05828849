// Package domain contains the core entities of the recap service: jobs and
// their lifecycle, pipeline stages, and cached generation results. It is
// independent of any specific storage or delivery mechanism.
package domain
