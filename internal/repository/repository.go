package repository

import "gorm.io/gorm"

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Account       AccountRepository
	Student       StudentRepository
	Homework      HomeworkRepository
	SubjectWeight SubjectWeightRepository
	Obligation    ObligationRepository
	Worksheet     WorksheetRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Account:       NewAccountRepo(db),
		Student:       NewStudentRepo(db),
		Homework:      NewHomeworkRepo(db),
		SubjectWeight: NewSubjectWeightRepo(db),
		Obligation:    NewObligationRepo(db),
		Worksheet:     NewWorksheetRepo(db),
	}
}
