// Package questionbank implements the Question Bank component of
// spec.md §2: a fixed scoring table for quiz questions 1 through 10,
// grounded on the Java QuestionBankService.
package questionbank

const (
	MinQuestionNumber = 1
	MaxQuestionNumber = 10
)

// Valid reports whether n is a question number this quiz knows about.
func Valid(n int) bool {
	return n >= MinQuestionNumber && n <= MaxQuestionNumber
}

// Points returns the number of points a correct answer to question n
// is worth. The original scoring rule is points(n) = n; callers must
// check Valid first.
func Points(n int) int {
	return n
}
