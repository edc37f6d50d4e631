// internal/services/group_service_test.go
package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive-backend/internal/models"
)

type GroupServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *GroupService

	owner *models.User
}

func (suite *GroupServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())

	storage, err := NewStorageService(newTestConfig())
	assert.NoError(suite.T(), err)

	suite.service = NewGroupService(suite.db, NewProductService(suite.db, storage))
	suite.owner = createTestUser(suite.T(), suite.db, "owner", "owner@example.com")
}

func (suite *GroupServiceTestSuite) createGroup(maxMembers int) *models.Group {
	suite.T().Helper()

	group, err := suite.service.CreateGroup(suite.owner.ID, &CreateGroupRequest{
		Name:        "calculus study group",
		Description: "Weekly problem sets and exam prep.",
		Topics:      []string{"calculus", "exam-prep"},
		MaxMembers:  maxMembers,
	})
	assert.NoError(suite.T(), err)
	return group
}

func (suite *GroupServiceTestSuite) TestCreateGroupMakesOwnerAdmin() {
	group := suite.createGroup(10)

	members, err := suite.service.ListMembers(group.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), members, 1)
	assert.Equal(suite.T(), suite.owner.ID, members[0].UserID)
	assert.Equal(suite.T(), models.GroupRoleAdmin, members[0].Role)
}

func (suite *GroupServiceTestSuite) TestJoinGroupEnforcesCap() {
	// Owner occupies one of the two seats.
	group := suite.createGroup(2)

	second := createTestUser(suite.T(), suite.db, "second", "second@example.com")
	_, err := suite.service.JoinGroup(group.ID, second.ID)
	assert.NoError(suite.T(), err)

	third := createTestUser(suite.T(), suite.db, "third", "third@example.com")
	_, err = suite.service.JoinGroup(group.ID, third.ID)
	assert.ErrorIs(suite.T(), err, ErrGroupFull)
}

func (suite *GroupServiceTestSuite) TestJoinGroupIsIdempotent() {
	group := suite.createGroup(10)
	member := createTestUser(suite.T(), suite.db, "member", "member@example.com")

	first, err := suite.service.JoinGroup(group.ID, member.ID)
	assert.NoError(suite.T(), err)

	again, err := suite.service.JoinGroup(group.ID, member.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), first.ID, again.ID)

	var count int64
	suite.db.Model(&models.GroupMember{}).Where("group_id = ?", group.ID).Count(&count)
	assert.Equal(suite.T(), int64(2), count) // owner + member
}

func (suite *GroupServiceTestSuite) TestJoinUnknownGroup() {
	member := createTestUser(suite.T(), suite.db, "member", "member@example.com")

	_, err := suite.service.JoinGroup(uuid.New(), member.ID)
	assert.ErrorIs(suite.T(), err, ErrGroupNotFound)
}

func (suite *GroupServiceTestSuite) TestMessagesRequireMembership() {
	group := suite.createGroup(10)
	outsider := createTestUser(suite.T(), suite.db, "outsider", "outsider@example.com")

	_, err := suite.service.SendMessage(group.ID, outsider.ID, &SendMessageRequest{Message: "hello"})
	assert.ErrorIs(suite.T(), err, ErrNotGroupMember)

	_, err = suite.service.ListMessages(group.ID, outsider.ID, 50, nil)
	assert.ErrorIs(suite.T(), err, ErrNotGroupMember)
}

func (suite *GroupServiceTestSuite) TestMessagesKeepSendOrder() {
	group := suite.createGroup(10)

	for i := 1; i <= 3; i++ {
		_, err := suite.service.SendMessage(group.ID, suite.owner.ID, &SendMessageRequest{
			Message: fmt.Sprintf("message %d", i),
		})
		assert.NoError(suite.T(), err)
	}

	messages, err := suite.service.ListMessages(group.ID, suite.owner.ID, 50, nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), messages, 3)
	assert.Equal(suite.T(), "message 1", messages[0].Message)
	assert.Equal(suite.T(), "message 3", messages[2].Message)
}

func (suite *GroupServiceTestSuite) TestMessagesWindowKeepsNewestReachable() {
	group := suite.createGroup(10)

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	for i := 1; i <= 5; i++ {
		msg := &models.GroupMessage{
			GroupID: group.ID,
			UserID:  suite.owner.ID,
			Message: fmt.Sprintf("message %d", i),
		}
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		assert.NoError(suite.T(), suite.db.Create(msg).Error)
	}

	// A limited read returns the newest messages, oldest-to-newest.
	messages, err := suite.service.ListMessages(group.ID, suite.owner.ID, 2, nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), messages, 2)
	assert.Equal(suite.T(), "message 4", messages[0].Message)
	assert.Equal(suite.T(), "message 5", messages[1].Message)

	// Paging backwards from the oldest returned message yields the window
	// before it.
	older, err := suite.service.ListMessages(group.ID, suite.owner.ID, 2, &messages[0].CreatedAt)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), older, 2)
	assert.Equal(suite.T(), "message 2", older[0].Message)
	assert.Equal(suite.T(), "message 3", older[1].Message)
}

func (suite *GroupServiceTestSuite) TestShareFileRequiresMembershipAndEntitlement() {
	group := suite.createGroup(10)
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	outsider := createTestUser(suite.T(), suite.db, "outsider", "outsider@example.com")
	_, err := suite.service.ShareFile(group.ID, product.ID, outsider.ID)
	assert.ErrorIs(suite.T(), err, ErrNotGroupMember)

	// The owner is a member but holds no entitlement to the paid product.
	_, err = suite.service.ShareFile(group.ID, product.ID, suite.owner.ID)
	assert.ErrorIs(suite.T(), err, ErrEntitlementRequired)

	err = suite.db.Create(&models.Purchase{ProductID: product.ID, UserID: suite.owner.ID}).Error
	assert.NoError(suite.T(), err)

	shared, err := suite.service.ShareFile(group.ID, product.ID, suite.owner.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.owner.ID, shared.SharedBy)

	files, err := suite.service.ListSharedFiles(group.ID, suite.owner.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), files, 1)
}

func (suite *GroupServiceTestSuite) TestSetCoverImageRequiresAdmin() {
	group := suite.createGroup(10)
	member := createTestUser(suite.T(), suite.db, "member", "member@example.com")
	_, err := suite.service.JoinGroup(group.ID, member.ID)
	assert.NoError(suite.T(), err)

	_, err = suite.service.SetCoverImage(group.ID, member.ID, "http://example.com/cover.png")
	assert.Error(suite.T(), err)

	updated, err := suite.service.SetCoverImage(group.ID, suite.owner.ID, "http://example.com/cover.png")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "http://example.com/cover.png", updated.CoverImageURL)
}

func TestGroupServiceSuite(t *testing.T) {
	suite.Run(t, new(GroupServiceTestSuite))
}
