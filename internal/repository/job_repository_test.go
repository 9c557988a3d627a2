package repository

import (
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/model"
)

const staleLock = 300 * time.Second

func (s *RepositoryTestSuite) TestClaimOneReturnsNilWhenQueueEmpty() {
	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Nil(job)
}

func (s *RepositoryTestSuite) TestClaimOneTakesOldestPendingJob() {
	first := s.createJob(model.JobStatusPending, 0, nil)
	s.createJob(model.JobStatusPending, 0, nil)

	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Require().NotNil(job)

	s.Equal(first.ID, job.ID)
	s.Equal(model.JobStatusProcessing, job.Status)
	s.Equal(1, job.Attempts)
	s.Require().NotNil(job.LockedAt)
	s.True(job.LockedAt.Equal(s.now))
	s.True(job.UpdatedAt.Equal(s.now))
}

func (s *RepositoryTestSuite) TestClaimOneIncrementsAttemptsAndClearsError() {
	created := s.createJob(model.JobStatusPending, 2, nil)
	msg := "previous failure"
	s.Require().NoError(s.db.Model(&model.PdfJob{}).Where("id = ?", created.ID).Update("error_message", msg).Error)

	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Require().NotNil(job)

	s.Equal(3, job.Attempts)
	s.Nil(job.ErrorMessage)
	s.Nil(s.reload(created.ID).ErrorMessage)
}

func (s *RepositoryTestSuite) TestClaimOneDoesNotReturnSameJobTwice() {
	s.createJob(model.JobStatusPending, 0, nil)
	s.createJob(model.JobStatusPending, 0, nil)

	first, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	second, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	third, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)

	s.Require().NotNil(first)
	s.Require().NotNil(second)
	s.NotEqual(first.ID, second.ID)
	s.Nil(third)
}

func (s *RepositoryTestSuite) TestClaimOneReclaimsStaleLock() {
	stale := s.createJob(model.JobStatusProcessing, 1, s.ago(10*time.Minute))

	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Require().NotNil(job)

	s.Equal(stale.ID, job.ID)
	s.Equal(2, job.Attempts)
	s.True(job.LockedAt.Equal(s.now))
}

func (s *RepositoryTestSuite) TestClaimOneSkipsFreshLock() {
	s.createJob(model.JobStatusProcessing, 1, s.ago(time.Minute))

	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Nil(job)
}

func (s *RepositoryTestSuite) TestClaimOneNeverTakesTerminalJobs() {
	s.createJob(model.JobStatusDone, 1, s.ago(time.Hour))
	s.createJob(model.JobStatusFailed, 3, s.ago(time.Hour))

	job, err := s.jobRepo.ClaimOne(s.ctx, staleLock)
	s.Require().NoError(err)
	s.Nil(job)
}

func (s *RepositoryTestSuite) TestFindByID() {
	created := s.createJob(model.JobStatusPending, 0, nil)

	job, err := s.jobRepo.FindByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.UploadedDocumentID, job.UploadedDocumentID)

	_, err = s.jobRepo.FindByID(s.ctx, created.ID+100)
	s.ErrorIs(err, ErrJobNotFound)
}

func (s *RepositoryTestSuite) TestListAndCountByStatus() {
	s.createJob(model.JobStatusPending, 0, nil)
	s.createJob(model.JobStatusPending, 0, nil)
	s.createJob(model.JobStatusFailed, 3, nil)

	jobs, total, err := s.jobRepo.List(s.ctx, model.JobStatusPending, 1, 1)
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(jobs, 1)

	all, total, err := s.jobRepo.List(s.ctx, "", 1, 10)
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Len(all, 3)
	s.Greater(all[0].ID, all[2].ID)

	counts, err := s.jobRepo.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(2, counts[model.JobStatusPending])
	s.EqualValues(1, counts[model.JobStatusFailed])
	s.EqualValues(0, counts[model.JobStatusDone])
}
