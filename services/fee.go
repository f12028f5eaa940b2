package services

// FeePerParticipant is the registration fee charged per person listed on a
// submission, in minor currency units.
const FeePerParticipant int64 = 150000

// CalculateFee returns the registration amount due for a submission with the
// given number of contributors. The submitting participant always counts, so
// a submission with no co-authors still owes one fee.
func CalculateFee(contributorCount int) int64 {
	if contributorCount < 0 {
		contributorCount = 0
	}
	return FeePerParticipant * int64(1+contributorCount)
}
