package verify

// Options toggles each check independently; every check is runnable and
// skippable on its own.
type Options struct {
	CheckDeadlock            bool
	CheckLiveness            bool
	CheckProgress            bool
	CheckParallelDeadlock    bool
	CheckRaceConditions      bool
	CheckChoiceDeterminism   bool
	CheckChoiceMergeability  bool
	CheckConnectedness       bool
	CheckNestedRecursion     bool
	CheckRecursionInParallel bool
	CheckForkJoinStructure   bool
	CheckMulticast           bool // warning-only
	CheckSelfCommunication   bool // advisory; off by default for dynamic participants
	CheckEmptyChoiceBranch   bool
	CheckMergeReachability   bool
	StrictMode               bool
}

// DefaultOptions enables every check except CheckSelfCommunication, which
// dynamic-role dialects rely on as ordinary local computation.
func DefaultOptions() Options {
	return Options{
		CheckDeadlock:            true,
		CheckLiveness:            true,
		CheckProgress:            true,
		CheckParallelDeadlock:    true,
		CheckRaceConditions:      true,
		CheckChoiceDeterminism:   true,
		CheckChoiceMergeability:  true,
		CheckConnectedness:       true,
		CheckNestedRecursion:     true,
		CheckRecursionInParallel: true,
		CheckForkJoinStructure:   true,
		CheckMulticast:           true,
		CheckSelfCommunication:   false,
		CheckEmptyChoiceBranch:   true,
		CheckMergeReachability:   true,
	}
}
