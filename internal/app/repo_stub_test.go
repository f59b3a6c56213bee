package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
)

// settlementRepoStub is an in-memory Repository used by the engine tests. It
// applies the same conditional-debit semantics as the Postgres implementation
// so balance invariants can be asserted after each leg.
type settlementRepoStub struct {
	users        map[uuid.UUID]*domain.User
	accounts     map[uuid.UUID]*domain.Account
	accountOrder []uuid.UUID
	transactions map[uuid.UUID]*domain.Transaction
	waitlist     map[string]bool

	statusWrites      map[uuid.UUID][]string
	destinationWrites map[uuid.UUID][]uuid.UUID
	toClearingCalls   int
	fromClearingCalls int

	findTransactionErr error
	moveToClearingErr  error
}

func newSettlementRepoStub() *settlementRepoStub {
	return &settlementRepoStub{
		users:             make(map[uuid.UUID]*domain.User),
		accounts:          make(map[uuid.UUID]*domain.Account),
		transactions:      make(map[uuid.UUID]*domain.Transaction),
		waitlist:          make(map[string]bool),
		statusWrites:      make(map[uuid.UUID][]string),
		destinationWrites: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *settlementRepoStub) addUser(user *domain.User) *domain.User {
	s.users[user.ID] = user
	return user
}

func (s *settlementRepoStub) addAccount(account *domain.Account) *domain.Account {
	s.accounts[account.ID] = account
	s.accountOrder = append(s.accountOrder, account.ID)
	return account
}

func (s *settlementRepoStub) addTransaction(tx *domain.Transaction) *domain.Transaction {
	s.transactions[tx.ID] = tx
	return tx
}

func (s *settlementRepoStub) balance(accountID uuid.UUID) int64 {
	return s.accounts[accountID].Balance
}

func (s *settlementRepoStub) totalBalance() int64 {
	var total int64
	for _, account := range s.accounts {
		total += account.Balance
	}
	return total
}

func (s *settlementRepoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *settlementRepoStub) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *settlementRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *settlementRepoStub) FindAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	var accounts []domain.Account
	for _, id := range s.accountOrder {
		if s.accounts[id].OwnerID == ownerID {
			accounts = append(accounts, *s.accounts[id])
		}
	}
	return accounts, nil
}

func (s *settlementRepoStub) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	if s.findTransactionErr != nil {
		return nil, s.findTransactionErr
	}
	tx, ok := s.transactions[transactionID]
	if !ok {
		return nil, store.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *settlementRepoStub) UpdateTransactionDestination(ctx context.Context, transactionID uuid.UUID, accountID uuid.UUID) error {
	s.destinationWrites[transactionID] = append(s.destinationWrites[transactionID], accountID)
	return nil
}

func (s *settlementRepoStub) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	s.statusWrites[transactionID] = append(s.statusWrites[transactionID], status)
	if tx, ok := s.transactions[transactionID]; ok {
		tx.Status = status
	}
	return nil
}

func (s *settlementRepoStub) MoveFundsToClearing(ctx context.Context, fromAccountID, clearingAccountID uuid.UUID, amount int64) error {
	s.toClearingCalls++
	if s.moveToClearingErr != nil {
		return s.moveToClearingErr
	}
	return s.move(fromAccountID, clearingAccountID, amount, store.ErrInsufficientFunds)
}

func (s *settlementRepoStub) MoveFundsFromClearing(ctx context.Context, clearingAccountID, toAccountID uuid.UUID, amount int64) error {
	s.fromClearingCalls++
	return s.move(clearingAccountID, toAccountID, amount, store.ErrClearingFundsShort)
}

func (s *settlementRepoStub) move(debitID, creditID uuid.UUID, amount int64, shortErr error) error {
	debit, ok := s.accounts[debitID]
	if !ok {
		return store.ErrAccountNotFound
	}
	credit, ok := s.accounts[creditID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if debit.Balance < amount {
		return shortErr
	}
	credit.Balance += amount
	debit.Balance -= amount
	return nil
}

func (s *settlementRepoStub) CreateWaitlistEntry(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	if s.waitlist[email] {
		return nil, store.ErrAlreadyWaitlisted
	}
	s.waitlist[email] = true
	return &domain.WaitlistEntry{ID: uuid.New(), Email: email, CreatedAt: time.Now()}, nil
}

// settlementFixture wires a sender, receiver, clearing identity, and a
// requested transaction into the stub repository.
type settlementFixture struct {
	repo         *settlementRepoStub
	service      *Service
	sender       *domain.User
	receiver     *domain.User
	clearingUser *domain.User
	source       *domain.Account
	clearing     *domain.Account
	tx           *domain.Transaction
}

const testClearingEmail = "clearing@payline.dev"

func newSettlementFixture(sourceBalance, amount int64) *settlementFixture {
	repo := newSettlementRepoStub()

	sender := repo.addUser(&domain.User{ID: uuid.New(), Email: "sender@example.com"})
	receiver := repo.addUser(&domain.User{ID: uuid.New(), Email: "receiver@example.com"})
	clearingUser := repo.addUser(&domain.User{ID: uuid.New(), Email: testClearingEmail})

	source := repo.addAccount(&domain.Account{ID: uuid.New(), OwnerID: sender.ID, Provider: "stripe", Balance: sourceBalance})
	clearing := repo.addAccount(&domain.Account{ID: uuid.New(), OwnerID: clearingUser.ID, Provider: "stripe", Balance: 0})

	tx := repo.addTransaction(&domain.Transaction{
		ID:       uuid.New(),
		Sender:   domain.NewUserRef(sender.ID),
		From:     domain.NewAccountRef(source.ID),
		Receiver: domain.NewUserRef(receiver.ID),
		Amount:   amount,
		Status:   domain.StatusRequested,
	})

	return &settlementFixture{
		repo:         repo,
		service:      NewService(repo, nil, testClearingEmail),
		sender:       sender,
		receiver:     receiver,
		clearingUser: clearingUser,
		source:       source,
		clearing:     clearing,
		tx:           tx,
	}
}

// addReceiverAccount attaches an account to the fixture's receiver.
func (f *settlementFixture) addReceiverAccount(balance int64) *domain.Account {
	return f.repo.addAccount(&domain.Account{ID: uuid.New(), OwnerID: f.receiver.ID, Provider: "stripe", Balance: balance})
}
