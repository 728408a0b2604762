package fortytwo

const queryListMarkets = `
	query ListMarkets($limit: Int!, $offset: Int!) {
		home_market_list(limit: $limit, offset: $offset) {
			question_id
			title
		}
	}
`

const queryQuestionStatus = `
	query QuestionStatus($limit: Int!, $offset: Int!) {
		question_status(limit: $limit, offset: $offset) {
			question_id
			title
			status
			current_end_timestamp
		}
	}
`

const queryActiveQuestions = `
	query ActiveQuestions($limit: Int!) {
		question(
			where: { active: { _eq: true } }
			limit: $limit
			order_by: { created_at: desc }
		) {
			question_id
			title
			description
			created_at
			active
			question_categories {
				category_id
				category {
					name
				}
			}
			outcomes {
				id
				token_id
			}
		}
	}
`

const queryMarketDetail = `
	query MarketDetail($questionId: String!) {
		question_by_pk(question_id: $questionId) {
			question_id
			title
			description
			created_at
			question_categories {
				category_id
				category {
					name
				}
			}
			outcomes {
				id
				token_id
			}
		}
		outcome_metadata(where: { question_id: { _eq: $questionId } }) {
			id
			question_id
			token_id
			symbol
			description
		}
		current_outcome_stats(where: { question_id: { _eq: $questionId } }) {
			question_id
			token_id
			market_address
			marginal_price
			collateral
			total_volume
			buy_volume
			sell_volume
			traders
			updated_at
		}
	}
`

const queryMarketStats = `
	query MarketStats($questionIds: [String!]!) {
		current_market_stats(where: { question_id: { _in: $questionIds } }) {
			question_id
			market_address
			total_volume
			buy_volume
			sell_volume
			traders
			collateral
			updated_at
		}
	}
`

const queryOutcomeStats = `
	query OutcomeStats($questionIds: [String!]!, $limit: Int!) {
		current_outcome_stats(
			where: { question_id: { _in: $questionIds } }
			limit: $limit
		) {
			question_id
			token_id
			market_address
			marginal_price
			collateral
			total_volume
			buy_volume
			sell_volume
			traders
			updated_at
		}
	}
`

const queryOutcomeMetadata = `
	query OutcomeMetadata($questionIds: [String!]!, $limit: Int!) {
		outcome_metadata(
			where: { question_id: { _in: $questionIds } }
			limit: $limit
		) {
			id
			question_id
			token_id
			symbol
			description
		}
	}
`

const queryMarketStatsByAddress = `
	query MarketStatsByAddress($addresses: [String!]!) {
		current_market_stats(where: { market_address: { _in: $addresses } }) {
			question_id
			market_address
			total_volume
			buy_volume
			sell_volume
			traders
			collateral
			updated_at
		}
	}
`
