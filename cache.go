package sqlhub

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"
)

// dbIDCount is a global variable used to generate unique DB IDs.
var dbIDCount int64

type dbID = int64

// statementCache caches the sql.Stmt objects prepared on each DB, keyed
// by the rendered statement text. The same definition can render to
// different texts on different runs, list expansions in particular, so
// the cache is per rendered statement rather than per definition.
//
// The cache closes a DB's sql.Stmt objects with a finalizer on the DB:
// after the DB is garbage collected the finalizer closes every statement
// prepared on it, removes the DB from the cache and closes the sql.DB.
//
// The mutex must be locked when accessing dbStmtCache.
type statementCache struct {
	dbStmtCache map[dbID]map[string]*sql.Stmt
	mutex       sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			dbStmtCache: map[dbID]map[string]*sql.Stmt{},
		}
	})
	return singleStmtCache
}

// newDB returns a new sqlhub.DB and allocates it in the cache.
func (sc *statementCache) newDB(sqldb *sql.DB, dialect Dialect) *DB {
	cacheID := atomic.AddInt64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[cacheID] = map[string]*sql.Stmt{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, dialect: dialect, cacheID: cacheID}
	runtime.SetFinalizer(db, sc.getDBFinalizer())
	return db
}

// lookupStmt returns the statement prepared on the DB for the rendered
// text, if one is cached.
func (sc *statementCache) lookupStmt(db *DB, sqlText string) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	// The DB ID is only removed from the cache when the finalizer is run,
	// so it is always in dbStmtCache.
	sqlstmt, ok := sc.dbStmtCache[db.cacheID][sqlText]
	return sqlstmt, ok
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a
// sql.DB or sql.Conn. It is used in prepareStmt.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepareStmt prepares a statement on a prepareSubstrate. It first checks
// in the cache to see if it has already been prepared on the DB.
// The prepareSubstrate must be associated with the same DB that
// prepareStmt is given.
func (sc *statementCache) prepareStmt(ctx context.Context, db *DB, ps prepareSubstrate, sqlText string) (*sql.Stmt, error) {
	sqlstmt, ok := sc.lookupStmt(db, sqlText)
	if !ok {
		var err error
		sqlstmt, err = ps.PrepareContext(ctx, sqlText)
		if err != nil {
			return nil, err
		}
		sc.mutex.Lock()
		// Check if a statement has been inserted by someone else since we
		// last checked.
		sqlstmtAlt, ok := sc.dbStmtCache[db.cacheID][sqlText]
		if ok {
			sqlstmt.Close()
			sqlstmt = sqlstmtAlt
		} else {
			sc.dbStmtCache[db.cacheID][sqlText] = sqlstmt
		}
		sc.mutex.Unlock()
	}
	return sqlstmt, nil
}

// getDBFinalizer returns a finalizer that closes and removes from the
// cache all sql.Stmt values prepared on the database, removes the
// database from the cache, then closes the sql.DB.
func (sc *statementCache) getDBFinalizer() func(*DB) {
	return func(db *DB) {
		sc.mutex.Lock()
		defer sc.mutex.Unlock()
		for _, sqlstmt := range sc.dbStmtCache[db.cacheID] {
			sqlstmt.Close()
		}
		delete(sc.dbStmtCache, db.cacheID)
		db.sqldb.Close()
	}
}
