package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/evdist-next/internal/cache"
	"github.com/evdist-next/internal/config"
	"github.com/evdist-next/internal/constants"
	"github.com/evdist-next/internal/logger"
	"github.com/evdist-next/internal/models"
	"github.com/evdist-next/internal/monitoring"
	"github.com/evdist-next/internal/queue"
	"github.com/evdist-next/internal/repository"

	"gorm.io/gorm"
)

const maxUsernameLength = 64

// RegisterInput 注册输入（推荐人可按会员ID或账号指定，均为空时作为根节点）
type RegisterInput struct {
	Username        string
	SponsorUserID   uint
	SponsorUsername string
}

// RegistrationResult 注册结果
type RegistrationResult struct {
	Member           *models.Member          `json:"member"`
	Node             *models.BinaryNode      `json:"node"`
	Ancestors        []models.BinaryNodePath `json:"ancestors"`
	Transitions      []ActivationTransition  `json:"-"`
	Activated        []uint                  `json:"activated"`
	DirectCommission *DirectCommissionResult `json:"direct_commission,omitempty"`
}

// RegistrationService 注册放置流程
type RegistrationService struct {
	memberRepo  repository.MemberRepository
	treeRepo    repository.BinaryTreeRepository
	tree        *TreeService
	activation  *ActivationTracker
	direct      *DirectCommissionService
	rules       *config.BinaryRules
	retry       config.RetryConfig
	queueClient *queue.Client
	metrics     *monitoring.Metrics
}

// NewRegistrationService 创建注册服务
func NewRegistrationService(
	memberRepo repository.MemberRepository,
	treeRepo repository.BinaryTreeRepository,
	tree *TreeService,
	activation *ActivationTracker,
	direct *DirectCommissionService,
	rules *config.BinaryRules,
	retry config.RetryConfig,
	queueClient *queue.Client,
	metrics *monitoring.Metrics,
) *RegistrationService {
	return &RegistrationService{
		memberRepo:  memberRepo,
		treeRepo:    treeRepo,
		tree:        tree,
		activation:  activation,
		direct:      direct,
		rules:       rules,
		retry:       retry,
		queueClient: queueClient,
		metrics:     metrics,
	}
}

// Register 创建会员并放置到二叉树，同事务完成全部祖先的激活判定
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegistrationResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, ErrInvalidUsername
	}
	sponsorUserID, err := s.resolveSponsor(input)
	if err != nil {
		return nil, err
	}

	attempt := 0
	result, err := RetryConflicts(ctx, s.retry, func() (*RegistrationResult, error) {
		attempt++
		if attempt > 1 {
			s.metrics.IncConflictRetry("register")
		}
		var res *RegistrationResult
		err := s.treeRepo.Transaction(func(tx *gorm.DB) error {
			tx = tx.WithContext(ctxOrBackground(ctx))
			member, err := s.ensureMemberTx(tx, username)
			if err != nil {
				return err
			}
			placement, err := s.tree.InsertTx(tx, sponsorUserID, member.ID)
			if err != nil {
				return err
			}
			transitions, err := s.activation.OnInsert(tx, placement)
			if err != nil {
				return err
			}
			res = &RegistrationResult{
				Member:      member,
				Node:        placement.Node,
				Ancestors:   placement.Ancestors,
				Transitions: transitions,
				Activated:   []uint{},
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	for _, transition := range result.Transitions {
		if !transition.Transitioned {
			continue
		}
		s.metrics.IncActivation()
		result.Activated = append(result.Activated, transition.AncestorUserID)
	}
	logger.Infow("binary_member_registered",
		"user_id", result.Member.ID,
		"sponsor_user_id", sponsorUserID,
		"side", result.Node.Side,
		"depth", result.Node.Depth,
		"activated", result.Activated,
	)

	if s.rules.AsyncDirectCommission && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueDirectCommission(result.Member.ID); err != nil {
			logger.Warnw("binary_register_enqueue_direct_failed", "user_id", result.Member.ID, "error", err)
		}
	} else {
		direct, err := s.direct.Process(ctx, result.Member.ID)
		if err != nil {
			logger.Warnw("binary_register_direct_commission_failed", "user_id", result.Member.ID, "error", err)
		}
		result.DirectCommission = direct
	}
	for _, ancestorUserID := range result.Activated {
		if err := s.queueClient.EnqueueMatchPairs(ancestorUserID); err != nil {
			logger.Warnw("binary_register_enqueue_match_failed", "ancestor_user_id", ancestorUserID, "error", err)
		}
	}
	return result, nil
}

func (s *RegistrationService) resolveSponsor(input RegisterInput) (uint, error) {
	if input.SponsorUserID != 0 {
		return input.SponsorUserID, nil
	}
	sponsorUsername := strings.TrimSpace(input.SponsorUsername)
	if sponsorUsername == "" {
		return 0, nil
	}
	sponsor, err := s.memberRepo.GetByUsername(sponsorUsername)
	if err != nil {
		return 0, err
	}
	if sponsor == nil {
		return 0, ErrPlacementSponsorNotFound
	}
	return sponsor.ID, nil
}

// ensureMemberTx 按账号获取或创建会员
func (s *RegistrationService) ensureMemberTx(tx *gorm.DB, username string) (*models.Member, error) {
	repo := s.memberRepo.WithTx(tx)
	member, err := repo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if member != nil {
		if member.Status == constants.MemberStatusDisabled {
			return nil, ErrMemberDisabled
		}
		return member, nil
	}
	member = &models.Member{
		Username: username,
		Status:   constants.MemberStatusActive,
	}
	if err := repo.Create(member); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrMemberExists
		}
		return nil, err
	}
	return member, nil
}

// GetMember 获取会员
func (s *RegistrationService) GetMember(userID uint) (*models.Member, error) {
	member, err := s.memberRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	return member, nil
}

// ListMembers 分页查询会员
func (s *RegistrationService) ListMembers(filter repository.MemberListFilter) ([]models.Member, int64, error) {
	return s.memberRepo.List(filter)
}

// SetMemberStatus 启用或禁用会员
func (s *RegistrationService) SetMemberStatus(userID uint, status string) (*models.Member, error) {
	if status != constants.MemberStatusActive && status != constants.MemberStatusDisabled {
		return nil, ErrMemberStatusInvalid
	}
	member, err := s.GetMember(userID)
	if err != nil {
		return nil, err
	}
	member.Status = status
	if err := s.memberRepo.Update(member); err != nil {
		return nil, err
	}
	if err := cache.DelMemberAuthState(context.Background(), userID); err != nil {
		logger.Warnw("member_auth_state_invalidate_failed", "user_id", userID, "error", err)
	}
	return member, nil
}
